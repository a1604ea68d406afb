package detector

// Reflectance detectors watch photons leaving through the top surface,
// transmittance detectors photons leaving through the bottom one. Every
// variant is the generic terminal estimator over a different axis list.
var terminalSpecs = []terminalSpec{
	{RDiffuse, top, nil},
	{ROfRho, top, []axisSpec{rhoAxis}},
	{ROfAngle, top, []axisSpec{exitAngleAxis(true)}},
	{ROfRhoAndTime, top, []axisSpec{rhoAxis, timeAxis}},
	{ROfRhoAndAngle, top, []axisSpec{rhoAxis, exitAngleAxis(true)}},
	{ROfXAndY, top, []axisSpec{xAxis, yAxis}},
	{ROfRhoAndOmega, top, []axisSpec{rhoAxis, omegaAxis}},
	{ROfFx, top, []axisSpec{fxAxis}},
	{ROfFxAndTime, top, []axisSpec{fxAxis, timeAxis}},

	{TDiffuse, bottom, nil},
	{TOfRho, bottom, []axisSpec{rhoAxis}},
	{TOfAngle, bottom, []axisSpec{exitAngleAxis(false)}},
	{TOfRhoAndAngle, bottom, []axisSpec{rhoAxis, exitAngleAxis(false)}},
	{TOfXAndY, bottom, []axisSpec{xAxis, yAxis}},
	{TOfFx, bottom, []axisSpec{fxAxis}},
}

func init() {
	for _, s := range terminalSpecs {
		Register(s.tallyType, s.construct)
	}
}
