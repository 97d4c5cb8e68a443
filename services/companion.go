package services

import (
	"bytes"
	"cyberia/types"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// FakeAppID is the app id SLSsteam reports in place of a faked game.
const FakeAppID = 480

const (
	keyFakeAppIDs    = "FakeAppIds"
	keyIdleStatus    = "IdleStatus"
	keyUnownedStatus = "UnownedStatus"

	ActionAdded   = "added"
	ActionRemoved = "removed"
)

// ErrConfigNotFound is returned when the SLSsteam config file does not exist.
var ErrConfigNotFound = errors.New("Config file not found")

// CompanionConfig edits the SLSsteam YAML config in place. Edits go through
// the node tree so keys, ordering and comments elsewhere in the file survive.
type CompanionConfig struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// statusBlock is the shape of IdleStatus and UnownedStatus
type statusBlock struct {
	AppID int    `yaml:"AppId"`
	Title string `yaml:"Title"`
}

// NewCompanionConfig creates an editor for the config at path
func NewCompanionConfig(path string, logger *slog.Logger) *CompanionConfig {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompanionConfig{path: path, logger: logger}
}

// Path returns the config file location
func (c *CompanionConfig) Path() string {
	return c.path
}

// HasFakeAppID reports whether appID is mapped under FakeAppIds. A missing
// file reports false.
func (c *CompanionConfig) HasFakeAppID(appID int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if errors.Is(err, ErrConfigNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	root, err := rootMapping(doc)
	if err != nil {
		return false, err
	}
	fakeIDs, _ := mappingValue(root, keyFakeAppIDs)
	if fakeIDs == nil || fakeIDs.Kind != yaml.MappingNode {
		return false, nil
	}
	_, index := mappingValue(fakeIDs, strconv.Itoa(appID))
	return index >= 0, nil
}

// ToggleFakeAppID removes appID from FakeAppIds if present, otherwise maps it
// to FakeAppID. It returns ActionAdded or ActionRemoved.
func (c *CompanionConfig) ToggleFakeAppID(appID int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return "", err
	}
	root, err := rootMapping(doc)
	if err != nil {
		return "", err
	}

	fakeIDs, _ := mappingValue(root, keyFakeAppIDs)
	if fakeIDs == nil || fakeIDs.Kind != yaml.MappingNode {
		fakeIDs = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		setMappingValue(root, keyFakeAppIDs, fakeIDs)
	}

	key := strconv.Itoa(appID)
	action := ActionAdded
	if _, index := mappingValue(fakeIDs, key); index >= 0 {
		fakeIDs.Content = append(fakeIDs.Content[:index], fakeIDs.Content[index+2:]...)
		action = ActionRemoved
	} else {
		fakeIDs.Style = 0
		fakeIDs.Content = append(fakeIDs.Content, intNode(appID), intNode(FakeAppID))
	}

	if err := c.save(doc); err != nil {
		return "", err
	}
	c.logger.Info("FakeAppId toggled", "appid", appID, "action", action)
	return action, nil
}

// StatusConfig reads IdleStatus and UnownedStatus. A missing file yields
// zero values.
func (c *CompanionConfig) StatusConfig() (types.StatusConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if errors.Is(err, ErrConfigNotFound) {
		return types.StatusConfig{}, nil
	}
	if err != nil {
		return types.StatusConfig{}, err
	}
	root, err := rootMapping(doc)
	if err != nil {
		return types.StatusConfig{}, err
	}

	idle, err := decodeStatusBlock(root, keyIdleStatus)
	if err != nil {
		return types.StatusConfig{}, err
	}
	unowned, err := decodeStatusBlock(root, keyUnownedStatus)
	if err != nil {
		return types.StatusConfig{}, err
	}

	return types.StatusConfig{
		IdleAppID:    idle.AppID,
		IdleTitle:    idle.Title,
		UnownedAppID: unowned.AppID,
		UnownedTitle: unowned.Title,
	}, nil
}

// SaveStatusConfig replaces the IdleStatus and UnownedStatus blocks. Titles
// are written double-quoted.
func (c *CompanionConfig) SaveStatusConfig(status types.StatusConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return err
	}
	root, err := rootMapping(doc)
	if err != nil {
		return err
	}

	setMappingValue(root, keyIdleStatus, statusNode(status.IdleAppID, status.IdleTitle))
	setMappingValue(root, keyUnownedStatus, statusNode(status.UnownedAppID, status.UnownedTitle))

	if err := c.save(doc); err != nil {
		return err
	}
	c.logger.Info("Status config saved")
	return nil
}

func (c *CompanionConfig) load() (*yaml.Node, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.path, err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}
	return &doc, nil
}

func (c *CompanionConfig) save(doc *yaml.Node) error {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("encode %s: %w", c.path, err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("encode %s: %w", c.path, err)
	}
	if err := os.WriteFile(c.path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", c.path, err)
	}
	return nil
}

func rootMapping(doc *yaml.Node) (*yaml.Node, error) {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("config is not a YAML document")
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		*root = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("config root is not a mapping")
	}
	return root, nil
}

// mappingValue returns the value node for key and the index of its key node,
// or nil and -1.
func mappingValue(mapping *yaml.Node, key string) (*yaml.Node, int) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1], i
		}
	}
	return nil, -1
}

func setMappingValue(mapping *yaml.Node, key string, value *yaml.Node) {
	if _, index := mappingValue(mapping, key); index >= 0 {
		// keep comments attached to the old value
		old := mapping.Content[index+1]
		value.HeadComment = old.HeadComment
		value.LineComment = old.LineComment
		value.FootComment = old.FootComment
		mapping.Content[index+1] = value
		return
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}

func decodeStatusBlock(root *yaml.Node, key string) (statusBlock, error) {
	var block statusBlock
	node, _ := mappingValue(root, key)
	if node == nil || node.Kind != yaml.MappingNode {
		return block, nil
	}
	if err := node.Decode(&block); err != nil {
		return block, fmt.Errorf("decode %s: %w", key, err)
	}
	return block, nil
}

func statusNode(appID int, title string) *yaml.Node {
	return &yaml.Node{
		Kind: yaml.MappingNode,
		Tag:  "!!map",
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: "AppId"},
			intNode(appID),
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: "Title"},
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: title, Style: yaml.DoubleQuotedStyle},
		},
	}
}

func intNode(value int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(value)}
}
