// Package pathmatch implements Ant-style path pattern matching over
// slash-delimited paths.
//
// Grammar:
//
//   - "?"  matches exactly one character within a segment
//   - "*"  matches zero or more characters within a segment
//   - "**" matches zero or more whole segments
//
// Matching is case-sensitive and anchored: the whole path must match.
//
//	pathmatch.Match("/api/*", "/api/users")     // true
//	pathmatch.Match("/api/*", "/api/users/1")   // false
//	pathmatch.Match("/api/**", "/api/users/1")  // true
//	pathmatch.Match("/api/?", "/api/1")         // true
package pathmatch
