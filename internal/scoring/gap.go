package scoring

// gapScore rewards under-reviewed listings relative to their category's
// top 10, plus a higher share of negative reviews — both read as
// "room to outcompete on reputation", capped at 15.
func gapScore(in Input) float64 {
	underReview := 0.0
	if in.CategoryTop10AvgReviewCount > 0 {
		ratio := 1 - float64(in.ReviewCount)/in.CategoryTop10AvgReviewCount
		underReview = clamp(ratio, 0, 1) * 10
	}

	negativeShare := clamp(in.OneTwoStarSharePercent/40*5, 0, 5)

	return clamp(underReview+negativeShare, 0, 15)
}
