package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Product is one advertisable item. Products have no identifier of their own.
type Product struct {
	Name     string `json:"name" yaml:"name"`
	URL      string `json:"url" yaml:"url"`
	Desc     string `json:"desc" yaml:"desc"`
	Category string `json:"category" yaml:"category"`
}

// categoryData mirrors the on-disk layout: three parallel lists per category.
type categoryData struct {
	Names []string `json:"names" yaml:"names"`
	URLs  []string `json:"urls" yaml:"urls"`
	Descs []string `json:"descs" yaml:"descs"`
}

// Catalog maps category names to products. It is read-only after construction.
type Catalog struct {
	categories []string
	products   map[string][]Product
}

// New builds a catalog from an in-memory category map.
func New(byCategory map[string][]Product) *Catalog {
	c := &Catalog{products: make(map[string][]Product, len(byCategory))}
	for name, products := range byCategory {
		list := make([]Product, len(products))
		for i, p := range products {
			p.Category = name
			list[i] = p
		}
		c.products[name] = list
		c.categories = append(c.categories, name)
	}
	sort.Strings(c.categories)
	return c
}

// Load reads a catalog file. Files ending in .yaml or .yml are parsed as YAML,
// anything else as JSON.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	data := map[string]categoryData{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &data)
	default:
		err = json.Unmarshal(raw, &data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	byCategory := make(map[string][]Product, len(data))
	for name, d := range data {
		products := make([]Product, 0, len(d.Names))
		for i, productName := range d.Names {
			products = append(products, Product{
				Name: productName,
				URL:  at(d.URLs, i),
				Desc: at(d.Descs, i),
			})
		}
		byCategory[name] = products
	}
	return New(byCategory), nil
}

func at(list []string, i int) string {
	if i < len(list) {
		return list[i]
	}
	return ""
}

// Categories returns category names in sorted order.
func (c *Catalog) Categories() []string {
	return append([]string(nil), c.categories...)
}

// Products returns the products of a category, or nil if the category is unknown.
func (c *Catalog) Products(category string) []Product {
	return c.products[category]
}

// Len is the number of categories.
func (c *Catalog) Len() int {
	return len(c.categories)
}
