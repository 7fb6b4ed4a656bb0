// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tactkey

// builtinKeys seed every new Service.
var builtinKeys = []struct {
	name uint64
	key  string
}{
	{0xE07E107F1390A3DF, "290D27B0E871F8C5B14A14E514D0F0D9"},
	{0xFA505078126ACB3E, "BDC51862ABED79B2DE48C8E7E66C6200"},
	{0xFF813F7D062AC0BC, "AA0B5C77F088CCC2D39049BD267F066D"},
	{0xD1E9B5EDF9283668, "8E4A2579894E38B4AB9058BA5C7328EE"},
	{0xB76729641141CB34, "9849D1AA7B1FD09819C5C66283A326EC"},
	{0xFFB9469FF16E6BF8, "D514BD1909A9E5DC8703F4B8BB1DFD9A"},
	{0x23C5B5DF837A226C, "1406E2D873B6FC99217A180881DA8D62"},
	{0xE2854509C471C554, "433265F0CDEB2F4E65C0EE7008714D9E"},
	{0x8EE2CB82178C995A, "DA6AFC989ED6CAD279885992C037A8EE"},
	{0x5813810F4EC9B005, "01BE8B43142DD99A9E690FAD288B6082"},
	{0x7F9E217166ED43EA, "05FC927B9F4F5B05568142912A052B0F"},
	{0xC4A8D364D23793F7, "D1AC20FD14957FABC27196E9F6E7024A"},
	{0x40A234AEBCF2C6E5, "C6C5F6C7F735D7D94C87267FA4994D45"},
	{0x9CF7DFCFCBCE4AE5, "72A97A24A998E3A5500F3871F37628C0"},
	{0x4E4BDECAB8485B4F, "3832D7C42AAC9268F00BE7B6B48EC9AF"},
	{0x94A50AC54EFF70E4, "C2501A72654B96F86350C5A927962F7A"},
	{0xBA973B0E01DE1C2C, "D83BBCB46CC438B17A48E76C4F5654A3"},
	{0x494A6F8E8E108BEF, "F0FDE1D29B274F6E7DBDB7FF815FE910"},
	{0x918D6DD0C3849002, "857090D926BB28AEDA4BF028CACC4BA3"},
}

// probeNames are key names whose builtin keys are long published. The
// lookup-table extractor scores candidate layouts by how many of them
// resolve to the builtin key.
var probeNames = []uint64{
	0xFA505078126ACB3E,
	0xE2854509C471C554,
	0x5813810F4EC9B005,
	0x7F9E217166ED43EA,
}
