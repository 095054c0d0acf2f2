package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractOPeNDAPURLs(t *testing.T) {
	granules := []Granule{
		{
			GranuleUR: "a",
			RelatedURLs: []RelatedURL{
				{URL: "https://data.gesdisc.earthdata.nasa.gov/a.nc4", Description: "Download a.nc4"},
				{URL: "https://opendap.earthdata.nasa.gov/a.nc4", Description: "The OPENDAP location for the granule."},
			},
		},
		{GranuleUR: "no metadata"},
		{
			GranuleUR: "b",
			RelatedURLs: []RelatedURL{
				{URL: "", Description: "OPeNDAP without a URL"},
				{URL: "https://opendap.earthdata.nasa.gov/b.nc4", Description: "opendap lowercase"},
			},
		},
		{
			GranuleUR: "a again",
			RelatedURLs: []RelatedURL{
				{URL: "https://opendap.earthdata.nasa.gov/a.nc4", Description: "OPENDAP"},
			},
		},
	}

	assert.Equal(t, []string{
		"https://opendap.earthdata.nasa.gov/a.nc4",
		"https://opendap.earthdata.nasa.gov/b.nc4",
		"https://opendap.earthdata.nasa.gov/a.nc4",
	}, ExtractOPeNDAPURLs(granules))
}

func TestExtractOPeNDAPURLs_Empty(t *testing.T) {
	assert.Empty(t, ExtractOPeNDAPURLs(nil))
}
