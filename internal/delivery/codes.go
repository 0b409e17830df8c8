package delivery

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed codes.yaml
var codesFS embed.FS

type codeTable struct {
	Codes map[string]string `yaml:"codes"`
}

var rejectionReasons map[string]string

func init() {
	raw, err := codesFS.ReadFile("codes.yaml")
	if err != nil {
		panic(fmt.Sprintf("delivery: embedded codes.yaml missing: %v", err))
	}
	var table codeTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		panic(fmt.Sprintf("delivery: bad codes.yaml: %v", err))
	}
	rejectionReasons = table.Codes
}

// ReasonForCode maps a hub rejection code to its description. Unknown codes
// are reported as such rather than failing.
func ReasonForCode(code string) string {
	if reason, ok := rejectionReasons[code]; ok {
		return reason
	}
	return fmt.Sprintf("unknown rejection code %s", code)
}
