package testutil

import (
	"strings"

	"github.com/ggolani/streamline/entitystore"
)

// Bundle ids used by the fixture palette
const (
	BundleKafka         int64 = 1
	BundleHDFS          int64 = 2
	BundleParser        int64 = 3
	BundleRule          int64 = 4
	BundleWindow        int64 = 5
	BundleBranch        int64 = 6
	BundleJoin          int64 = 7
	BundleCustom        int64 = 8
	BundleSplit         int64 = 9
	BundleStage         int64 = 10
	BundleNormalization int64 = 11
	BundleShuffle       int64 = 20
	BundleFields        int64 = 21
)

// Bundles returns the fixture palette keyed by bundle type
func Bundles() map[string][]*entitystore.Bundle {
	processor := func(id int64, subtype string) *entitystore.Bundle {
		return &entitystore.Bundle{ID: id, Name: subtype, Type: entitystore.BundleProcessor, SubType: subtype}
	}
	custom := processor(BundleCustom, "CUSTOM")
	custom.UISpec = entitystore.UISpecification{Fields: []entitystore.BundleField{
		{FieldName: "name", DefaultValue: "Enrich"},
		{FieldName: "jarFileName"},
	}}

	return map[string][]*entitystore.Bundle{
		entitystore.BundleSource: {
			{ID: BundleKafka, Name: "Kafka", Type: entitystore.BundleSource, SubType: "KAFKA"},
		},
		entitystore.BundleSink: {
			{ID: BundleHDFS, Name: "HDFS", Type: entitystore.BundleSink, SubType: "HDFS"},
		},
		entitystore.BundleProcessor: {
			processor(BundleParser, "PARSER"),
			processor(BundleRule, "RULE"),
			processor(BundleWindow, "WINDOW"),
			processor(BundleBranch, "BRANCH"),
			processor(BundleJoin, "JOIN"),
			custom,
			processor(BundleSplit, "SPLIT"),
			processor(BundleStage, "STAGE"),
			processor(BundleNormalization, "NORMALIZATION"),
		},
		entitystore.BundleLink: {
			{ID: BundleShuffle, Name: "Shuffle", Type: entitystore.BundleLink, SubType: "SHUFFLE"},
			{ID: BundleFields, Name: "Fields", Type: entitystore.BundleLink, SubType: "FIELDS"},
		},
	}
}

// BundleFor returns the fixture bundle with subtype, or nil
func BundleFor(subtype string) *entitystore.Bundle {
	for _, list := range Bundles() {
		for _, b := range list {
			if strings.EqualFold(b.SubType, subtype) {
				return b
			}
		}
	}
	return nil
}

// SeedBundles registers the fixture palette on store
func SeedBundles(store *entitystore.Memory) {
	for bundleType, list := range Bundles() {
		store.SetBundles(bundleType, list...)
	}
}
