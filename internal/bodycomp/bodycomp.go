// Package bodycomp estimates body composition from a weight and a
// bio-impedance resistance reading.
package bodycomp

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrNoImpedance is returned when the reading carries no usable
	// resistance.
	ErrNoImpedance = errors.New("bodycomp: no impedance reading")
	// ErrInvalidProfile is returned for a profile that cannot be used.
	ErrInvalidProfile = errors.New("bodycomp: invalid profile")
)

// Sex selects the coefficient set.
type Sex int

const (
	Male Sex = iota
	Female
)

func (s Sex) String() string {
	switch s {
	case Male:
		return "male"
	case Female:
		return "female"
	default:
		return fmt.Sprintf("Sex(%d)", int(s))
	}
}

// ParseSex parses "male" or "female".
func ParseSex(s string) (Sex, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m":
		return Male, nil
	case "female", "f":
		return Female, nil
	default:
		return 0, fmt.Errorf("%w: sex must be \"male\" or \"female\", got %q", ErrInvalidProfile, s)
	}
}

// Formula selects the estimation model.
type Formula int

const (
	// FormulaStandard derives percentages from BMI and an impedance index.
	FormulaStandard Formula = iota
	// FormulaTranslate derives fat and water directly from resistance and
	// muscle, bone and basal metabolism from those.
	FormulaTranslate
)

func (f Formula) String() string {
	switch f {
	case FormulaStandard:
		return "standard"
	case FormulaTranslate:
		return "translate"
	default:
		return fmt.Sprintf("Formula(%d)", int(f))
	}
}

// Profile describes the person on the scale.
type Profile struct {
	Sex     Sex
	Age     int     // years
	HeightM float64 // metres
	Formula Formula
	// Variant selects the alternate coefficient table of FormulaStandard.
	Variant bool
}

// Validate reports whether the profile can be used for an estimate.
func (p Profile) Validate() error {
	if p.Sex != Male && p.Sex != Female {
		return fmt.Errorf("%w: unknown sex %d", ErrInvalidProfile, int(p.Sex))
	}
	if p.Age <= 0 {
		return fmt.Errorf("%w: age must be > 0, got %d", ErrInvalidProfile, p.Age)
	}
	if p.HeightM <= 0 || p.HeightM > 3 {
		return fmt.Errorf("%w: height must be in metres, got %g", ErrInvalidProfile, p.HeightM)
	}
	if p.Formula != FormulaStandard && p.Formula != FormulaTranslate {
		return fmt.Errorf("%w: unknown formula %d", ErrInvalidProfile, int(p.Formula))
	}
	return nil
}

// Result holds an estimate. Fields a formula does not produce are zero:
// FormulaStandard fills the percentages, FormulaTranslate fills fat and
// water percentages plus the masses and basal metabolism.
type Result struct {
	Formula       Formula
	BMI           float64
	FatPercent    float64
	WaterPercent  float64
	MusclePercent float64
	BonePercent   float64
	MuscleKg      float64
	BoneKg        float64
	// BasalMetabolism is in kcal per day.
	BasalMetabolism float64
}

// BMI returns weight over height squared.
func BMI(weightKg, heightM float64) float64 {
	return weightKg / heightM / heightM
}

// Estimate computes body composition for a weight and resistance reading.
func Estimate(p Profile, weightKg, resistance float64) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if weightKg <= 0 {
		return Result{}, fmt.Errorf("bodycomp: weight must be > 0, got %g", weightKg)
	}
	if resistance <= 0 || math.IsNaN(resistance) {
		return Result{}, ErrNoImpedance
	}

	if p.Formula == FormulaTranslate {
		// The model works on resistance - 10 and divides by it.
		if resistance <= 10 {
			return Result{}, ErrNoImpedance
		}
		return translate(p, weightKg, resistance), nil
	}
	return standard(p, weightKg, resistance), nil
}

// impedanceIndex maps a raw resistance to the index used by the standard
// formula. Readings under 410 ohm clamp to 3.
func impedanceIndex(resistance float64) float64 {
	if resistance < 410 {
		return 3.0
	}
	return 0.3 * (resistance - 400)
}

// standardCoefficients holds one row of the standard model:
// value = base + bmi*bmiK + imp*impK + age*ageK. Fat scales BMI instead.
type standardCoefficients struct {
	fatBMI, fatImp, fatAge, fatBase             float64
	waterBase, waterBMI, waterImp, waterAge     float64
	muscleBase, muscleBMI, muscleImp, muscleAge float64
	boneBase, boneBMI, boneImp, boneAge         float64
}

// standardTable is indexed by [variant][sex].
var standardTable = [2][2]standardCoefficients{
	{
		{1.479, 4.4e-4, 0.1, -21.764, 87.51, -1.162, -0.00813, 0.07594, 74.627, -0.811, -0.00565, -0.367, 7.829, -0.0855, -5.92e-4, -0.0389},
		{1.506, 3.908e-4, 0.1, -12.834, 77.721, -1.148, -0.00573, 0.06448, 57.0, -0.694, -0.00344, -0.255, 7.98, -0.0973, -4.84e-4, -0.036},
	},
	{
		{1.504, 3.835e-4, 0.102, -26.565, 91.305, -1.191, -0.00768, 0.08148, 77.389, -0.819, -0.00486, -0.382, 8.091, -0.0856, -5.25e-4, -0.0403},
		{1.511, 3.296e-4, 0.104, -17.241, 80.286, -1.132, -0.0052, 0.07152, 59.225, -0.685, -0.00283, -0.274, 8.309, -0.0965, -4.02e-4, -0.0389},
	},
}

func standard(p Profile, weightKg, resistance float64) Result {
	variant := 0
	if p.Variant {
		variant = 1
	}
	c := standardTable[variant][p.Sex]
	bmi := BMI(weightKg, p.HeightM)
	imp := impedanceIndex(resistance)
	age := float64(p.Age)

	return Result{
		Formula:       FormulaStandard,
		BMI:           bmi,
		FatPercent:    bmi*(c.fatBMI+c.fatImp*imp) + c.fatAge*age + c.fatBase,
		WaterPercent:  c.waterBase + c.waterBMI*bmi + c.waterImp*imp + c.waterAge*age,
		MusclePercent: c.muscleBase + c.muscleBMI*bmi + c.muscleImp*imp + c.muscleAge*age,
		BonePercent:   c.boneBase + c.boneBMI*bmi + c.boneImp*imp + c.boneAge*age,
	}
}

func translate(p Profile, weightKg, resistance float64) Result {
	h := p.HeightM
	w := weightKg
	age := float64(p.Age)
	i := resistance - 10

	var fat, water, muscle, bone, bmr float64
	switch p.Sex {
	case Male:
		fat = 60.3 -
			h*(486583.0*h)/w/i +
			9.146*w/h/h/i -
			h*(251.193*h)/w/age +
			1625303.0/i/i -
			0.0139*i +
			0.05975*age
		water = 30.849 + h*(259672.5*h)/w/i + 0.372*i/h/w - w*(2.581*h)/i
	case Female:
		fat = 57.621 -
			h*(186.422*h)/w -
			h*(382280.0*h)/w/i +
			128.005*w/h/i -
			0.0728*w/h +
			7816.359/h/i -
			3.333*w/h/h/age
		water = 23.018 + h*(201468.7*h)/w/i + 421.543/w/h + 160.445*h/w
	}
	fat = math.Max(5.0, fat)
	water = math.Max(30.0, water)

	switch p.Sex {
	case Male:
		muscle = 0.95*w - w*(0.0095*fat) - 0.13
		bone = 0.116 + 0.0525*muscle
		bmr = -72.421 + 30.809*muscle + 1.795*w - 2.444*age
	case Female:
		muscle = 1.13 + 0.914*w - w*(0.00914*fat)
		bone = -1.22 + 0.0944*muscle
		bmr = -40.135 + 25.669*muscle + 6.067*w - 1.964*age
	}

	return Result{
		Formula:         FormulaTranslate,
		BMI:             BMI(w, h),
		FatPercent:      fat,
		WaterPercent:    water,
		MuscleKg:        muscle,
		BoneKg:          bone,
		BasalMetabolism: bmr,
	}
}
