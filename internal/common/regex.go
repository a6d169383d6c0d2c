package common

import (
	"regexp"
	"sync"
)

var regexCache sync.Map // pattern -> *regexp.Regexp or error

// MatchRegexFold tests text against pattern ignoring case.
// Compiled patterns, and compile failures, are cached.
// An invalid pattern returns false and the compile error.
func MatchRegexFold(pattern, text string) (bool, error) {
	if cached, ok := regexCache.Load(pattern); ok {
		switch v := cached.(type) {
		case *regexp.Regexp:
			return v.MatchString(text), nil
		case error:
			return false, v
		}
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		regexCache.Store(pattern, err)
		return false, err
	}
	regexCache.Store(pattern, re)
	return re.MatchString(text), nil
}
