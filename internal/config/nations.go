package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/bannerboard/internal/model"
)

//go:embed nations.yaml
var defaultNations []byte

type nationCatalog struct {
	Nations []model.Nation `yaml:"nations"`
}

// LoadNations は国のカタログを読み込む。pathが空の場合は組み込みのカタログを使う。
func LoadNations(path string) ([]model.Nation, error) {
	data := defaultNations
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("国カタログの読み込みに失敗: %w", err)
		}
		data = b
	}
	return ParseNations(data)
}

// ParseNations はYAMLの国カタログを解析し、検証する。
// keyは必須かつ一意で、予約済みのnewsとdefaultは使えない。
func ParseNations(data []byte) ([]model.Nation, error) {
	var catalog nationCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("国カタログの解析に失敗: %w", err)
	}
	if len(catalog.Nations) == 0 {
		return nil, fmt.Errorf("国カタログが空です")
	}

	seen := make(map[string]bool, len(catalog.Nations))
	nations := make([]model.Nation, 0, len(catalog.Nations))
	for i, n := range catalog.Nations {
		n.Key = strings.TrimSpace(n.Key)
		switch {
		case n.Key == "":
			return nil, fmt.Errorf("国カタログ%d件目: keyが空です", i+1)
		case n.Key == model.NewsNationKey || n.Key == model.DefaultNationKey:
			return nil, fmt.Errorf("国カタログ%d件目: %sは予約済みのkeyです", i+1, n.Key)
		case seen[n.Key]:
			return nil, fmt.Errorf("国カタログ%d件目: keyが重複しています: %s", i+1, n.Key)
		}
		seen[n.Key] = true
		if n.Name == "" {
			n.Name = n.Key
		}
		nations = append(nations, n)
	}
	return nations, nil
}
