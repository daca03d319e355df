// Package queryparser turns natural-language search text into residual
// terms plus structured filters.
//
// Parsing runs in a fixed order:
//
//  1. key:value operators (type:, label:, tag:, has:ocr, has:vision)
//  2. optional keyword fuzzing and spelling correction
//  3. a date cascade in which the first matching expression wins
//  4. file type words, mapped to extension lists
//  5. filler word removal
//
// Each matched span is removed from the residual text. Parse is pure apart
// from the clock, which Options.Now replaces in tests.
package queryparser
