package extract

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Field names produced by the engine.
const (
	FieldTitle   = "title"
	FieldFeature = "feature"
	FieldImages  = "images"
)

// ItemPlaceholder is replaced by the item number in FeatureScopePattern.
const ItemPlaceholder = "{item}"

// Markers holds the page-specific tags, classes, and prefixes the rules key
// on.
type Markers struct {
	TitleTag            string   `mapstructure:"title_tag" yaml:"title_tag"`
	TitleClass          string   `mapstructure:"title_class" yaml:"title_class"`
	FeatureScopeTag     string   `mapstructure:"feature_scope_tag" yaml:"feature_scope_tag"`
	FeatureScopeAttr    string   `mapstructure:"feature_scope_attr" yaml:"feature_scope_attr"`
	FeatureScopePattern string   `mapstructure:"feature_scope_pattern" yaml:"feature_scope_pattern"`
	FeatureTag          string   `mapstructure:"feature_tag" yaml:"feature_tag"`
	FeatureClass        string   `mapstructure:"feature_class" yaml:"feature_class"`
	ImageTag            string   `mapstructure:"image_tag" yaml:"image_tag"`
	ImageAttr           string   `mapstructure:"image_attr" yaml:"image_attr"`
	ImagePrefixes       []string `mapstructure:"image_prefixes" yaml:"image_prefixes"`
}

// DefaultMarkers matches the catalog's current detail page markup.
func DefaultMarkers() Markers {
	return Markers{
		TitleTag:            "h1",
		TitleClass:          "MuiTypography-h4",
		FeatureScopeTag:     "div",
		FeatureScopeAttr:    "data-testid",
		FeatureScopePattern: "item-details-" + ItemPlaceholder + "-features",
		FeatureTag:          "p",
		FeatureClass:        "MuiTypography-body1",
		ImageTag:            "img",
		ImageAttr:           "src",
		ImagePrefixes:       []string{"https://www-ironplanet", "https://cdn.ironpla.net"},
	}
}

// Engine applies the title, feature, and image rules to detail pages.
type Engine struct {
	markers Markers
	logger  *zap.Logger
}

// NewEngine validates markers and returns an Engine.
func NewEngine(markers Markers, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !strings.Contains(markers.FeatureScopePattern, ItemPlaceholder) {
		return nil, fmt.Errorf("feature scope pattern %q must contain %s", markers.FeatureScopePattern, ItemPlaceholder)
	}
	e := &Engine{markers: markers, logger: logger}
	var errs []error
	for _, rule := range e.Rules("0") {
		if err := rule.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid extraction markers: %w", err)
	}
	return e, nil
}

// Rules returns the field rules scoped to item, in application order.
func (e *Engine) Rules(item crawler.ItemNumber) []FieldRule {
	m := e.markers
	scope := Selector{
		Tag:   m.FeatureScopeTag,
		Where: Prefix(m.FeatureScopeAttr, strings.ReplaceAll(m.FeatureScopePattern, ItemPlaceholder, string(item))),
	}
	return []FieldRule{
		{
			Name:    FieldTitle,
			Target:  Selector{Tag: m.TitleTag, Where: Contains("class", m.TitleClass)},
			Policy:  PolicyFirst,
			Default: crawler.DefaultFieldValue,
		},
		{
			Name:      FieldFeature,
			Scope:     &scope,
			Target:    Selector{Tag: m.FeatureTag, Where: Contains("class", m.FeatureClass)},
			Policy:    PolicyLast,
			SkipEmpty: true,
			Default:   crawler.DefaultFieldValue,
		},
		{
			Name:      FieldImages,
			Target:    Selector{Tag: m.ImageTag, Where: OneOfPrefixes(m.ImageAttr, m.ImagePrefixes...)},
			Attr:      m.ImageAttr,
			Policy:    PolicyJoin,
			SkipEmpty: true,
		},
	}
}

// Extract implements crawler.Extractor. A nil or unparsed document yields a
// fully defaulted record.
func (e *Engine) Extract(doc *crawler.Document, item crawler.ItemNumber) crawler.ProductRecord {
	url := ""
	if doc != nil {
		url = doc.URL
	}
	record := crawler.NewProductRecord(url)
	if !doc.Parsed() {
		e.logger.Debug("extracting from empty document", zap.String("item", string(item)))
		return record
	}
	root := doc.Selection()
	for _, rule := range e.Rules(item) {
		switch rule.Name {
		case FieldTitle:
			record.Title = rule.Resolve(root)
		case FieldFeature:
			record.Feature = rule.Resolve(root)
		case FieldImages:
			record.Images = rule.Collect(root)
		}
	}
	if record.Title == crawler.DefaultFieldValue {
		e.logger.Debug("title not found", zap.String("url", url), zap.String("item", string(item)))
	}
	return record
}
