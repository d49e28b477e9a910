package filter

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// universeFile is the on-disk shape of a pinned universe, e.g.
// config/pairs.yaml.
type universeFile struct {
	Name  string   `yaml:"name"`
	Pairs []string `yaml:"pairs"`
}

// LoadUniverse reads a pinned scan universe from a YAML file. Pair
// spelling is preserved so the scan meta echoes the file; blank entries
// are dropped. An empty universe is a configuration error, not a scan
// with no work.
func LoadUniverse(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapErr(domain.KindConfig, "read universe file "+path, err)
	}
	var file universeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, domain.WrapErr(domain.KindConfig, "parse universe file "+path, err)
	}

	pairs := make([]string, 0, len(file.Pairs))
	for _, pair := range file.Pairs {
		if p := strings.TrimSpace(pair); p != "" {
			pairs = append(pairs, p)
		}
	}
	if len(pairs) == 0 {
		return nil, domain.Ef(domain.KindConfig, "universe file %s lists no pairs", path)
	}
	return pairs, nil
}
