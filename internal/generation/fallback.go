package generation

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"sciencenova/internal/domain"
)

type themeRule struct {
	keyword  string
	gradient string
}

type effectRule struct {
	keywords []string
	effect   string
}

// Order matters: the first keyword found in the prompt wins.
var themeTable = []themeRule{
	{"space", gradient("667eea", "764ba2", "f093fb")},
	{"ocean", gradient("74b9ff", "0984e3", "6c5ce7")},
	{"forest", gradient("00b894", "00a085", "2d3436")},
	{"mountain", gradient("fd79a8", "fdcb6e", "6c5ce7")},
	{"desert", gradient("fdcb6e", "fd79a8", "e17055")},
	{"arctic", gradient("74b9ff", "a29bfe", "fd79a8")},
	{"volcano", gradient("fd63a8", "fc7303", "2d3436")},
	{"garden", gradient("00b894", "fd79a8", "fdcb6e")},
	{"laboratory", gradient("a29bfe", "74b9ff", "0984e3")},
	{"jungle", gradient("00b894", "55a3ff", "fd79a8")},
	{"cave", gradient("636e72", "2d3436", "ddd")},
	{"crystal", gradient("a29bfe", "fd79a8", "fdcb6e")},
	{"underwater", gradient("0984e3", "74b9ff", "00b894")},
	{"magical", gradient("fd79a8", "a29bfe", "fdcb6e")},
	{"cosmic", gradient("2d3436", "6c5ce7", "fd79a8")},
	{"fossil", gradient("ddd", "b2bec3", "636e72")},
}

var defaultTheme = themeRule{"default", gradient("667eea", "764ba2", "f093fb")}

var effectTable = []effectRule{
	{[]string{"space", "cosmic", "galaxy", "stars"}, "globe"},
	{[]string{"ocean", "underwater", "sea", "water"}, "waves"},
	{[]string{"laboratory", "science", "experiment", "research"}, "net"},
	{[]string{"forest", "jungle", "nature", "garden"}, "cells"},
	{[]string{"cave", "crystal", "mineral", "geology"}, "topology"},
	{[]string{"magical", "fantasy", "mystical", "enchanted"}, "halo"},
	{[]string{"desert", "sand", "archaeology", "dig"}, "rings"},
	{[]string{"arctic", "ice", "snow", "frozen"}, "clouds2"},
	{[]string{"volcano", "fire", "lava", "eruption"}, "birds"},
}

const defaultEffect = "globe"

func gradient(a, b, c string) string {
	return fmt.Sprintf("linear-gradient(135deg, #%s 0%%, #%s 50%%, #%s 100%%)", a, b, c)
}

// RenderFallback picks a placeholder for prompt. It is pure and safe for
// concurrent use.
func RenderFallback(prompt string) domain.Placeholder {
	// cases.Caser is stateful, so each call folds with its own.
	folded := cases.Fold().String(prompt)

	theme := defaultTheme
	for _, rule := range themeTable {
		if strings.Contains(folded, rule.keyword) {
			theme = rule
			break
		}
	}

	effect := defaultEffect
scan:
	for _, rule := range effectTable {
		for _, kw := range rule.keywords {
			if strings.Contains(folded, kw) {
				effect = rule.effect
				break scan
			}
		}
	}

	return domain.Placeholder{
		Theme:        theme.keyword,
		Gradient:     theme.gradient,
		VisualEffect: effect,
	}
}
