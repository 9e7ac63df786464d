// Package extract turns rendered list items into raw listings.
package extract

import (
	"fmt"

	"github.com/valpere/listingsync/internal/browser"
	"github.com/valpere/listingsync/internal/utils"
)

// RawListing is one list item as read from the page.
type RawListing struct {
	Title   string `json:"title"`
	Locator string `json:"locator"`
	Size    string `json:"size"`
}

// Selectors locate the sub-fields inside one list item.
type Selectors struct {
	Item             string `yaml:"item" json:"item"`
	Title            string `yaml:"title" json:"title"`
	Locator          string `yaml:"locator" json:"locator"`
	LocatorAttribute string `yaml:"locator_attribute" json:"locator_attribute"`
	Size             string `yaml:"size" json:"size"`
}

// Validate checks that every selector needed for extraction is set.
func (s Selectors) Validate() error {
	var missing []string
	if s.Item == "" {
		missing = append(missing, "item")
	}
	if s.Title == "" {
		missing = append(missing, "title")
	}
	if s.Locator == "" {
		missing = append(missing, "locator")
	}
	if s.LocatorAttribute == "" {
		missing = append(missing, "locator_attribute")
	}
	if s.Size == "" {
		missing = append(missing, "size")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing selectors: %v", missing)
	}
	return nil
}

// Stats summarises one extraction pass.
type Stats struct {
	Items     int
	Extracted int
	Skipped   int
}

// Extractor reads RawListings from item handles.
type Extractor struct {
	selectors Selectors
	logger    utils.Logger
}

// NewExtractor creates an extractor for the given selectors.
func NewExtractor(selectors Selectors, logger utils.Logger) *Extractor {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Extractor{
		selectors: selectors,
		logger:    logger.WithField("component", "extractor"),
	}
}

// Extract reads every handle independently. A handle with any missing
// sub-field is skipped whole; output keeps input order and is not
// deduplicated.
func (e *Extractor) Extract(handles []browser.ItemHandle) ([]RawListing, Stats) {
	stats := Stats{Items: len(handles)}
	listings := make([]RawListing, 0, len(handles))

	for i, handle := range handles {
		listing, err := e.extractOne(handle)
		if err != nil {
			stats.Skipped++
			e.logger.WithFields(map[string]interface{}{"index": i, "reason": err.Error()}).Debug("skipping incomplete item")
			continue
		}
		listings = append(listings, listing)
	}

	stats.Extracted = len(listings)
	return listings, stats
}

func (e *Extractor) extractOne(handle browser.ItemHandle) (RawListing, error) {
	title, err := handle.Text(e.selectors.Title)
	if err != nil {
		return RawListing{}, fmt.Errorf("title: %w", err)
	}
	locator, err := handle.Attr(e.selectors.Locator, e.selectors.LocatorAttribute)
	if err != nil {
		return RawListing{}, fmt.Errorf("locator: %w", err)
	}
	size, err := handle.Text(e.selectors.Size)
	if err != nil {
		return RawListing{}, fmt.Errorf("size: %w", err)
	}
	return RawListing{Title: title, Locator: locator, Size: size}, nil
}
