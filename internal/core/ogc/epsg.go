package ogc

import (
	"strconv"
	"strings"
)

const (
	epsgURIPrefix = "http://www.opengis.net/def/crs/EPSG/0/"
	CRS84URI      = "http://www.opengis.net/def/crs/OGC/1.3/CRS84"
)

// EPSGToURI resolves "EPSG:25832", "25832" or "urn:ogc:def:crs:EPSG::25832"
// to the OGC http URI. URIs pass through; anything unparseable yields "".
func EPSGToURI(code string) string {
	c := strings.TrimSpace(code)
	if c == "" {
		return ""
	}
	if strings.HasPrefix(c, "http://") || strings.HasPrefix(c, "https://") {
		return c
	}
	if strings.EqualFold(c, "CRS84") || strings.EqualFold(c, "OGC:CRS84") {
		return CRS84URI
	}
	// last ':'-separated segment carries the number for both EPSG:n and urn forms
	if i := strings.LastIndex(c, ":"); i >= 0 {
		c = c[i+1:]
	}
	n, err := strconv.Atoi(c)
	if err != nil || n <= 0 {
		return ""
	}
	return epsgURIPrefix + strconv.Itoa(n)
}
