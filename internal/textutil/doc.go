// Package textutil turns free-form video titles into names that are safe to
// use as a single path segment.
//
// Titles are decomposed (NFD), combining marks are dropped so accented
// letters fall back to their ASCII base, and anything other than ASCII word
// characters, whitespace, periods and dashes is removed. Whitespace runs are
// collapsed. A title that ends up with no letters or digits becomes
// "untitled".
package textutil
