package models

import (
	"path/filepath"
	"strings"
)

// Category is the file-type bucket derived from a file name's extension.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryPDF      Category = "pdf"
	CategoryWord     Category = "word"
	CategoryExcel    Category = "excel"
	CategoryPPT      Category = "ppt"
	CategoryArchive  Category = "archive"
	CategoryText     Category = "text"
	CategoryLog      Category = "log"
	CategoryMarkdown Category = "markdown"
	CategoryCode     Category = "code"
	CategoryOther    Category = "other"
)

var extensionCategories = map[string]Category{
	"jpg": CategoryImage, "jpeg": CategoryImage, "png": CategoryImage,
	"gif": CategoryImage, "bmp": CategoryImage, "webp": CategoryImage,

	"mp4": CategoryVideo, "avi": CategoryVideo, "mov": CategoryVideo,
	"wmv": CategoryVideo, "flv": CategoryVideo,

	"mp3": CategoryAudio, "wav": CategoryAudio, "ogg": CategoryAudio, "flac": CategoryAudio,

	"pdf":  CategoryPDF,
	"doc":  CategoryWord,
	"docx": CategoryWord,
	"xls":  CategoryExcel,
	"xlsx": CategoryExcel,
	"ppt":  CategoryPPT,
	"pptx": CategoryPPT,

	"zip": CategoryArchive, "rar": CategoryArchive, "7z": CategoryArchive,
	"tar": CategoryArchive, "gz": CategoryArchive,

	"txt": CategoryText,
	"log": CategoryLog,
	"md":  CategoryMarkdown,

	"js": CategoryCode, "py": CategoryCode, "java": CategoryCode, "cpp": CategoryCode,
	"cs": CategoryCode, "php": CategoryCode, "html": CategoryCode, "css": CategoryCode,
}

// Classify returns the category for a file name. Matching is on the last
// extension and is case-insensitive.
func Classify(name string) Category {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if c, ok := extensionCategories[ext]; ok {
		return c
	}
	return CategoryOther
}

// Unified folds the fine-grained buckets into the coarser set used by the
// download view: log files count as text and markdown counts as code.
func (c Category) Unified() Category {
	switch c {
	case CategoryLog:
		return CategoryText
	case CategoryMarkdown:
		return CategoryCode
	}
	return c
}

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{
		CategoryImage, CategoryVideo, CategoryAudio, CategoryPDF, CategoryWord,
		CategoryExcel, CategoryPPT, CategoryArchive, CategoryText, CategoryLog,
		CategoryMarkdown, CategoryCode, CategoryOther,
	}
}

// ParseCategory accepts a category name in any case. Empty input returns
// the empty Category (match-all).
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", true
	}
	for _, c := range Categories() {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}
