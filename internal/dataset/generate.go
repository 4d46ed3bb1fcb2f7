package dataset

import (
	"bufio"
	"io"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
)

var (
	sampleProvinces    = []string{"Gauteng", "WesternCape", "KwaZuluNatal", "EasternCape", "Limpopo"}
	samplePostalCodes  = []int{2001, 2002, 2003, 7001, 7002, 4001, 4002, 5001, 5002, 6001}
	sampleGenders      = []string{"Male", "Female"}
	sampleVehicleTypes = []string{"Sedan", "Hatchback", "SUV", "Truck"}
)

// SampleColumns is the header written by Generate.
var SampleColumns = []string{
	"PolicyID", "Province", "PostalCode", "Gender", "Age", ColTotalPremium, ColTotalClaims, "VehicleType",
}

// Generate writes n rows of synthetic policy data in the production schema,
// pipe-delimited. Roughly 35% of policies carry a claim.
func Generate(w io.Writer, n int, seed uint64) error {
	rng := rand.New(rand.NewPCG(seed, seed))
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(strings.Join(SampleColumns, "|") + "\n"); err != nil {
		return err
	}
	for i := 1; i <= n; i++ {
		premium := clamp(600+math.Exp(rng.NormFloat64()*0.6)*400, 400, 3500)
		claims := 0.0
		if rng.Float64() < 0.35 {
			claims = clamp(math.Exp(5+rng.NormFloat64()*1.2)*20, 10, 2500)
		}
		fields := []string{
			strconv.Itoa(i),
			sampleProvinces[rng.IntN(len(sampleProvinces))],
			strconv.Itoa(samplePostalCodes[rng.IntN(len(samplePostalCodes))]),
			sampleGenders[rng.IntN(len(sampleGenders))],
			strconv.Itoa(18 + rng.IntN(52)),
			strconv.FormatFloat(math.Round(premium*100)/100, 'f', 2, 64),
			strconv.FormatFloat(math.Round(claims*100)/100, 'f', 2, 64),
			sampleVehicleTypes[rng.IntN(len(sampleVehicleTypes))],
		}
		if _, err := bw.WriteString(strings.Join(fields, "|") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
