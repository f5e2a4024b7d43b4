package timeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// File reads a Document from disk. The format follows the extension
// (json, toml, yaml); viper does the decoding, so attribute keys come back
// lower-cased.
type File struct {
	Path string
}

func (f File) Timeline(ctx context.Context) (Timeline, error) {
	if err := ctx.Err(); err != nil {
		return Timeline{}, err
	}
	doc, err := ReadDocument(f.Path)
	if err != nil {
		return Timeline{}, err
	}
	return doc.Timeline()
}

// ReadDocument decodes a timeline document without validating it.
func ReadDocument(path string) (Document, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Clean(path))
	if err := v.ReadInConfig(); err != nil {
		return Document{}, fmt.Errorf("read timeline %s: %w", path, err)
	}
	var doc Document
	if err := v.Unmarshal(&doc); err != nil {
		return Document{}, fmt.Errorf("decode timeline %s: %w", path, err)
	}
	return doc, nil
}
