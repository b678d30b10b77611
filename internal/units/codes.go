package units

// Category is a coarse grouping of WMO weather interpretation codes.
type Category string

const (
	CategoryClear        Category = "clear"
	CategoryCloudy       Category = "partly cloudy"
	CategoryFog          Category = "fog"
	CategoryDrizzle      Category = "drizzle"
	CategoryRain         Category = "rain"
	CategorySnow         Category = "snow"
	CategoryThunderstorm Category = "thunderstorm"
)

// codeCategories follows the Open-Meteo WMO code table.
var codeCategories = map[int]Category{
	0:  CategoryClear,
	1:  CategoryCloudy,
	2:  CategoryCloudy,
	3:  CategoryCloudy,
	45: CategoryFog,
	48: CategoryFog,
	51: CategoryDrizzle,
	53: CategoryDrizzle,
	55: CategoryDrizzle,
	56: CategoryDrizzle,
	57: CategoryDrizzle,
	61: CategoryRain,
	63: CategoryRain,
	65: CategoryRain,
	66: CategoryRain,
	67: CategoryRain,
	71: CategorySnow,
	73: CategorySnow,
	75: CategorySnow,
	77: CategorySnow,
	80: CategoryRain,
	81: CategoryRain,
	82: CategoryRain,
	85: CategorySnow,
	86: CategorySnow,
	95: CategoryThunderstorm,
	96: CategoryThunderstorm,
	99: CategoryThunderstorm,
}

// CategoryForCode maps a weather code to its category. Unknown codes are clear.
func CategoryForCode(code int) Category {
	if c, ok := codeCategories[code]; ok {
		return c
	}
	return CategoryClear
}

// Label returns the display form of the category.
func (c Category) Label() string {
	return Title(string(c))
}
