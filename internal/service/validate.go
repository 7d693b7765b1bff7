package service

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/shinyyama/fleamarket-backend/internal/model"
)

var ErrInvalidInput = errors.New("invalid input")

const maxTitleLength = 120

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

func validateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		return invalid("invalid title")
	}
	return nil
}

func validateCategory(category string) error {
	if !slices.Contains(model.Categories, strings.TrimSpace(category)) {
		return invalid("unknown category")
	}
	return nil
}

func validateImages(images []string) error {
	cleaned := cleanImages(images)
	if len(cleaned) > model.MaxListingImages {
		return invalid(fmt.Sprintf("at most %d images", model.MaxListingImages))
	}
	for _, u := range cleaned {
		if strings.HasPrefix(u, "data:") {
			return invalid("image must be a URL, not data URI")
		}
		if !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
			return invalid("image must be an http(s) URL")
		}
	}
	return nil
}

// cleanImages trims entries and drops blanks, keeping order.
func cleanImages(images []string) []string {
	out := make([]string, 0, len(images))
	for _, u := range images {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func validatePatch(p ListingPatch) error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Category != nil {
		if err := validateCategory(*p.Category); err != nil {
			return err
		}
	}
	if p.Images != nil {
		if err := validateImages(*p.Images); err != nil {
			return err
		}
	}
	return nil
}
