package service

import "strings"

// Category is one controlled-vocabulary entry with its display labels.
type Category struct {
	Slug string
	En   string
	Zh   string
}

// categoryRule maps keyword signals to a category. Rules are ordered and
// the first match terminates the search; more specific rules go first.
type categoryRule struct {
	keywords []string
	category Category
}

var categoryRules = []categoryRule{
	{[]string{"book store", "bookstore", "book shop"}, Category{"bookstore", "Bookstore", "书店"}},
	{[]string{"coffee", "cafe", "café", "espresso"}, Category{"cafe", "Cafe", "咖啡馆"}},
	{[]string{"bakery", "patisserie", "pastry"}, Category{"bakery", "Bakery", "面包店"}},
	{[]string{"bar", "pub", "cocktail", "wine bar", "brewery"}, Category{"bar", "Bar", "酒吧"}},
	{[]string{"restaurant", "bistro", "diner", "eatery", "food"}, Category{"restaurant", "Restaurant", "餐厅"}},
	{[]string{"art gallery", "gallery"}, Category{"gallery", "Gallery", "美术馆"}},
	{[]string{"museum"}, Category{"museum", "Museum", "博物馆"}},
	{[]string{"library"}, Category{"library", "Library", "图书馆"}},
	{[]string{"cinema", "movie theater", "movie theatre"}, Category{"cinema", "Cinema", "电影院"}},
	{[]string{"theater", "theatre", "concert hall", "opera"}, Category{"performing-arts", "Performing arts", "演艺场所"}},
	{[]string{"park", "garden", "botanical"}, Category{"park", "Park", "公园"}},
	{[]string{"hotel", "hostel", "guesthouse", "guest house"}, Category{"hotel", "Hotel", "酒店"}},
	{[]string{"market", "bazaar"}, Category{"market", "Market", "市集"}},
	{[]string{"vintage", "thrift", "second hand", "secondhand"}, Category{"vintage-shop", "Vintage shop", "古着店"}},
	{[]string{"record store", "record shop", "vinyl"}, Category{"record-store", "Record store", "唱片店"}},
	{[]string{"shop", "store", "boutique"}, Category{"shop", "Shop", "商店"}},
	{[]string{"spa", "sauna", "bathhouse", "bath house"}, Category{"spa", "Spa", "水疗"}},
	{[]string{"landmark", "monument", "historical", "temple", "church", "cathedral"}, Category{"landmark", "Landmark", "地标"}},
}

// tagRules inject a standalone descriptive tag when the search query that
// produced the hit signals a special interest. The tag never changes the
// resolved category: the slug stays governed by what the place is.
var tagRules = []struct {
	keywords []string
	tag      string
}{
	{[]string{"feminist", "women owned", "women-owned"}, "feminist-interest"},
	{[]string{"lgbt", "lgbtq", "queer"}, "queer-friendly"},
	{[]string{"vegan"}, "vegan-friendly"},
}

// CategoryResult is the normalizer output: slug plus two display labels,
// and any injected tags. AI tags are never produced here.
type CategoryResult struct {
	Slug *string
	En   *string
	Zh   *string
	Tags []string
}

// NormalizeCategory resolves raw category signals to the controlled
// vocabulary. Priority: raw category list, then the primary category
// name, then the search query string.
func NormalizeCategory(categories []string, categoryName, searchString *string) CategoryResult {
	var result CategoryResult

	if cat, ok := matchCategory(categories); ok {
		result.setCategory(cat)
	} else if cat, ok := matchCategoryString(categoryName); ok {
		result.setCategory(cat)
	} else if cat, ok := matchCategoryString(searchString); ok {
		result.setCategory(cat)
	}

	if searchString != nil {
		query := strings.ToLower(*searchString)
		for _, rule := range tagRules {
			for _, kw := range rule.keywords {
				if strings.Contains(query, kw) {
					result.Tags = append(result.Tags, rule.tag)
					break
				}
			}
		}
	}

	return result
}

func (r *CategoryResult) setCategory(cat Category) {
	slug, en, zh := cat.Slug, cat.En, cat.Zh
	r.Slug, r.En, r.Zh = &slug, &en, &zh
}

func matchCategory(values []string) (Category, bool) {
	for _, rule := range categoryRules {
		for _, value := range values {
			lowered := strings.ToLower(value)
			for _, kw := range rule.keywords {
				if strings.Contains(lowered, kw) {
					return rule.category, true
				}
			}
		}
	}
	return Category{}, false
}

func matchCategoryString(value *string) (Category, bool) {
	if value == nil {
		return Category{}, false
	}
	return matchCategory([]string{*value})
}
