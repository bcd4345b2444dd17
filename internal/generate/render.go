package generate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/pkg/set"
)

var placeholderRE = regexp.MustCompile(`\{([^{}]+)\}`)

const (
	escapedOpen  = "\x00"
	escapedClose = "\x01"
)

// renderTemplate substitutes every {name} placeholder in tmpl from the
// replacement map. Doubled braces escape literal braces. A placeholder
// without a replacement fails the render, so a typo in a command template
// surfaces at generation time instead of inside the container.
func renderTemplate(tmpl string, replacements map[string]string) (string, error) {
	out := strings.ReplaceAll(tmpl, "{{", escapedOpen)
	out = strings.ReplaceAll(out, "}}", escapedClose)

	missing := set.New[string]()
	out = placeholderRE.ReplaceAllStringFunc(out, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := replacements[name]; ok {
			return value
		}
		missing.Insert(name)
		return match
	})
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, "{"+name+"}")
		}
		slices.Sort(names)
		return "", errors.Errorf("unresolved placeholders %s", strings.Join(names, ", "))
	}

	out = strings.ReplaceAll(out, escapedOpen, "{")
	out = strings.ReplaceAll(out, escapedClose, "}")
	return out, nil
}

// formatValue renders a parameter value the way it appears in container
// names and commands.
func formatValue(val interface{}) string {
	if s, ok := val.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", val)
}
