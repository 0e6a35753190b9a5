// Package risk decides whether an authentication attempt needs step-up
// (a second factor) based on per-request signals and subject attributes.
//
// Assessments are computed fresh per attempt and never cached. Any failure
// while loading subject attributes fails closed: step-up is required.
package risk
