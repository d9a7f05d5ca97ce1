// Package filter decides which fetched submissions a target accepts.
package filter

import (
	"fmt"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
)

// ScoreOperator compares a submission's score to the limit. Both comparisons include the limit itself.
type ScoreOperator string

const (
	ScoreAny     ScoreOperator = "none"
	ScoreAtLeast ScoreOperator = "ge"
	ScoreAtMost  ScoreOperator = "le"
)

type NSFWPolicy string

const (
	NSFWExclude NSFWPolicy = "exclude"
	NSFWOnly    NSFWPolicy = "only"
	NSFWInclude NSFWPolicy = "include"
)

type SelfPostPolicy string

const (
	SelfPostAll  SelfPostPolicy = "all"
	SelfPostNone SelfPostPolicy = "no_self"
	SelfPostOnly SelfPostPolicy = "only_self"
)

// Criteria is the subset of a target's settings the filter looks at. Date limits are unix seconds.
type Criteria struct {
	DateLimit         int64
	AbsoluteDateLimit int64
	ScoreLimit        int
	ScoreOperator     ScoreOperator
	NSFW              NSFWPolicy
	SelfPost          SelfPostPolicy
}

// EffectiveDateLimit is the cutoff a submission must be newer than.
func (c *Criteria) EffectiveDateLimit() int64 {
	if c.AbsoluteDateLimit > c.DateLimit {
		return c.AbsoluteDateLimit
	}
	return c.DateLimit
}

type Reason int

const (
	Passed Reason = iota
	FailedDate
	FailedScore
	FailedNSFW
	FailedSelfPost
)

func (r Reason) String() string {
	switch r {
	case Passed:
		return "passed"
	case FailedDate:
		return "older than date limit"
	case FailedScore:
		return "score limit"
	case FailedNSFW:
		return "nsfw policy"
	case FailedSelfPost:
		return "self post policy"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Result is the outcome of checking one submission.
type Result struct {
	Reason   Reason
	Stickied bool
}

func (r Result) Passed() bool {
	return r.Reason == Passed
}

// DateFailed reports whether the submission is old enough to end enumeration of a newest-first feed.
func (r Result) DateFailed() bool {
	return r.Reason == FailedDate && !r.Stickied
}

// Check applies each rule in order and reports the first that rejects the submission.
//
// Stickied submissions skip the date rule, since feeds return them out of chronological order.
func Check(sub *downloader.Submission, c *Criteria) Result {
	res := Result{Stickied: sub.Stickied}
	switch {
	case !sub.Stickied && sub.Created.Unix() <= c.EffectiveDateLimit():
		res.Reason = FailedDate
	case !scorePasses(sub.Score, c):
		res.Reason = FailedScore
	case !nsfwPasses(sub.NSFW, c.NSFW):
		res.Reason = FailedNSFW
	case !selfPostPasses(sub.IsSelf, c.SelfPost):
		res.Reason = FailedSelfPost
	}
	return res
}

// Passes is a shortcut for Check(sub, c).Passed().
func Passes(sub *downloader.Submission, c *Criteria) bool {
	return Check(sub, c).Passed()
}

func scorePasses(score int, c *Criteria) bool {
	switch c.ScoreOperator {
	case ScoreAtLeast:
		return score >= c.ScoreLimit
	case ScoreAtMost:
		return score <= c.ScoreLimit
	default:
		return true
	}
}

func nsfwPasses(nsfw bool, policy NSFWPolicy) bool {
	switch policy {
	case NSFWExclude:
		return !nsfw
	case NSFWOnly:
		return nsfw
	default:
		return true
	}
}

func selfPostPasses(self bool, policy SelfPostPolicy) bool {
	switch policy {
	case SelfPostNone:
		return !self
	case SelfPostOnly:
		return self
	default:
		return true
	}
}
