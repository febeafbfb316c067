package scoring

// competitionScore rewards thin, unstable competition: fewer active
// sellers and higher seller/buy-box churn both add points, capped at 20.
func competitionScore(in Input) float64 {
	sellerCount := in.ActiveSellerCount
	if sellerCount < 1 {
		sellerCount = 1
	}
	sellerCountPoints := clamp(12-float64(sellerCount-1)*1.2, 0, 12)

	churn := 0.5*in.SellerRotation30d + 0.5*in.BuyBoxChurn30d
	churnPoints := clamp(churn*8, 0, 8)

	return clamp(sellerCountPoints+churnPoints, 0, 20)
}
