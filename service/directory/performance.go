package directory

import "github.com/viant/revflow/model"

// NeutralRating is the composite score of a reviewer with no completed reviews
const NeutralRating = 70.0

// Rating is the derived composite performance of a reviewer
type Rating struct {
	Score  float64                 `json:"score"`
	Bucket model.PerformanceBucket `json:"bucket"`
}

// PerformanceRating blends 0.4 quality, 0.3 on-time rate and 0.3 thoroughness.
func PerformanceRating(profile *model.ReviewerProfile) Rating {
	metrics := profile.Metrics
	score := NeutralRating
	if metrics.CompletedReviews > 0 {
		score = 0.4*metrics.AverageQualityScore + 0.3*metrics.OnTimeRate*100 + 0.3*metrics.AverageThoroughness
	}
	return Rating{Score: score, Bucket: Bucket(score)}
}

// Bucket classifies a composite score.
func Bucket(score float64) model.PerformanceBucket {
	switch {
	case score >= 90:
		return model.PerformanceExcellent
	case score >= 80:
		return model.PerformanceGood
	case score >= 70:
		return model.PerformanceSatisfactory
	case score >= 60:
		return model.PerformanceNeedsImprovement
	}
	return model.PerformancePoor
}

// Completion describes one finished human review
type Completion struct {
	ReviewTimeHours float64
	QualityScore    float64
	OnTime          bool
	FeedbackQuality float64
	Thoroughness    float64
}

// applyCompletion updates running averages with the incremental mean
// newAvg = (oldAvg*(n-1) + x) / n, n being the post-increment count.
func applyCompletion(metrics *model.Metrics, completion Completion) {
	metrics.CompletedReviews++
	n := float64(metrics.CompletedReviews)
	mean := func(old, x float64) float64 { return (old*(n-1) + x) / n }
	metrics.AverageReviewTimeHours = mean(metrics.AverageReviewTimeHours, completion.ReviewTimeHours)
	metrics.AverageQualityScore = mean(metrics.AverageQualityScore, completion.QualityScore)
	metrics.AverageFeedbackQuality = mean(metrics.AverageFeedbackQuality, completion.FeedbackQuality)
	metrics.AverageThoroughness = mean(metrics.AverageThoroughness, completion.Thoroughness)
	if completion.OnTime {
		metrics.OnTimeReviews++
	}
	metrics.OnTimeRate = float64(metrics.OnTimeReviews) / n
}
