package manufacturer

import "strings"

// Manufacturer is the closed set of vendors with known procedures. Generic is
// the zero value and the fallback for anything unrecognised.
type Manufacturer int

const (
	Generic Manufacturer = iota
	Samsung
	Xiaomi
	Huawei
	Google
	OnePlus
	Motorola
	Sony
	LG
	Nokia
	Oppo
	Vivo
	Realme
	Asus
	ZTE
	Meizu
	Lenovo
	Honor
	Infinix
	Nothing
	Tecno
)

type info struct {
	name     string
	platform string
	aliases  []string
}

var table = map[Manufacturer]info{
	Generic:  {name: "Generic", platform: "Qualcomm / MediaTek"},
	Samsung:  {name: "Samsung", platform: "Exynos / Qualcomm"},
	Xiaomi:   {name: "Xiaomi", platform: "Qualcomm / MediaTek", aliases: []string{"redmi", "poco", "mi"}},
	Huawei:   {name: "Huawei", platform: "HiSilicon Kirin / Qualcomm"},
	Google:   {name: "Google (Pixel)", platform: "Google Tensor / Qualcomm", aliases: []string{"pixel", "google"}},
	OnePlus:  {name: "OnePlus", platform: "Qualcomm / MediaTek", aliases: []string{"one plus"}},
	Motorola: {name: "Motorola", platform: "Qualcomm / MediaTek", aliases: []string{"moto"}},
	Sony:     {name: "Sony", platform: "Qualcomm"},
	LG:       {name: "LG", platform: "Qualcomm / MediaTek", aliases: []string{"lge"}},
	Nokia:    {name: "Nokia", platform: "Qualcomm / MediaTek", aliases: []string{"hmd"}},
	Oppo:     {name: "Oppo", platform: "Qualcomm / MediaTek"},
	Vivo:     {name: "Vivo", platform: "Qualcomm / MediaTek", aliases: []string{"iqoo"}},
	Realme:   {name: "Realme", platform: "Qualcomm / MediaTek"},
	Asus:     {name: "Asus", platform: "Qualcomm"},
	ZTE:      {name: "ZTE", platform: "Qualcomm / MediaTek", aliases: []string{"nubia"}},
	Meizu:    {name: "Meizu", platform: "Qualcomm / MediaTek"},
	Lenovo:   {name: "Lenovo", platform: "Qualcomm / MediaTek"},
	Honor:    {name: "Honor", platform: "HiSilicon Kirin / Qualcomm"},
	Infinix:  {name: "Infinix", platform: "MediaTek"},
	Nothing:  {name: "Nothing", platform: "Qualcomm"},
	Tecno:    {name: "Tecno", platform: "MediaTek"},
}

// All lists the known vendors in display order. Generic is not included.
func All() []Manufacturer {
	out := make([]Manufacturer, 0, int(Tecno))
	for m := Samsung; m <= Tecno; m++ {
		out = append(out, m)
	}
	return out
}

// Name is the display name.
func (m Manufacturer) Name() string {
	if v, ok := table[m]; ok {
		return v.name
	}
	return table[Generic].name
}

func (m Manufacturer) String() string { return m.Name() }

// PlatformHint names the chipset family the vendor usually ships.
func (m Manufacturer) PlatformHint() string {
	if v, ok := table[m]; ok {
		return v.platform
	}
	return table[Generic].platform
}

// Parse maps free text to a vendor. Matching is case-insensitive over the
// display name, the bare identifier and a few sub-brand aliases; anything else
// selects Generic.
func Parse(raw string) Manufacturer {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return Generic
	}
	for m, v := range table {
		if strings.ToLower(v.name) == key {
			return m
		}
		for _, alias := range v.aliases {
			if alias == key {
				return m
			}
		}
	}
	return Generic
}
