package generation

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"sciencenova/internal/domain"
)

// KeyFunc derives the breaker key of a prompt.
type KeyFunc func(prompt string) domain.PromptKey

// DefaultKeyPrefix is the number of leading characters used by PrefixKey.
const DefaultKeyPrefix = 50

// PrefixKey keys prompts by their first n characters. Long prompts sharing
// a prefix share breaker state.
func PrefixKey(n int) KeyFunc {
	return func(prompt string) domain.PromptKey {
		runes := []rune(prompt)
		if len(runes) > n {
			runes = runes[:n]
		}
		return domain.PromptKey(runes)
	}
}

// HashKey keys prompts by the sha256 of the full text.
func HashKey(prompt string) domain.PromptKey {
	sum := sha256.Sum256([]byte(prompt))
	return domain.PromptKey(hex.EncodeToString(sum[:]))
}

// KeyFuncFor resolves a configured strategy name.
func KeyFuncFor(strategy string) KeyFunc {
	if strategy == "sha256" {
		return HashKey
	}
	return PrefixKey(DefaultKeyPrefix)
}

// CacheKey identifies a generation request in the image cache.
func CacheKey(prompt, aspectRatio string, gradeLevel *int) string {
	grade := "any"
	if gradeLevel != nil {
		grade = strconv.Itoa(*gradeLevel)
	}
	sum := sha256.Sum256([]byte(prompt + "|" + aspectRatio + "|" + grade))
	return hex.EncodeToString(sum[:])
}
