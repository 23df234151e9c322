// Package download implements the download orchestrator (spec.md §4.M):
// URI-typed File/Directory inputs are detected by scheme and materialized
// by running a synthetic task through the same task runtime user tasks
// use, with the result cached across runs by URI.
package download

import (
	"fmt"
	"net/url"
	"strings"
)

// Scheme identifies the URI family a File/Directory input was given as.
type Scheme string

const (
	SchemeLocal Scheme = "" // no scheme, or file:// — already a local path
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
	SchemeS3    Scheme = "s3"
	SchemeGS    Scheme = "gs"
	SchemeFTP   Scheme = "ftp"
)

// helper names one scheme's fetch image and the shell command template
// run inside it; %s placeholders are the source URI and destination path,
// in that order. These are the "scheme-specific helper image" of spec.md
// §6.5, referenced only by tag, never built locally.
type helper struct {
	image   string
	command string
}

var helpers = map[Scheme]helper{
	SchemeHTTP:  {image: "curlimages/curl:8.9.1", command: "curl -fsSL %s -o %s"},
	SchemeHTTPS: {image: "curlimages/curl:8.9.1", command: "curl -fsSL %s -o %s"},
	SchemeFTP:   {image: "curlimages/curl:8.9.1", command: "curl -fsSL %s -o %s"},
	SchemeS3:    {image: "amazon/aws-cli:2.17.0", command: "aws s3 cp %s %s"},
	SchemeGS:    {image: "google/cloud-sdk:498.0.0-slim", command: "gsutil cp %s %s"},
}

// aria2Helper is the optional high-throughput fetcher spec.md §6.5 allows
// in place of the default curl helper for http(s)/ftp.
var aria2Helper = helper{image: "p3terx/aria2-pro:latest", command: "aria2c -x4 -s4 -o %[2]s %[1]s"}

// DetectScheme classifies a File/Directory input's virtual path by URI
// scheme; an unparseable or schemeless string is SchemeLocal.
func DetectScheme(raw string) Scheme {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Scheme == "file" {
		return SchemeLocal
	}
	return Scheme(strings.ToLower(u.Scheme))
}

func helperFor(s Scheme, useAria2 bool) (helper, error) {
	if useAria2 && (s == SchemeHTTP || s == SchemeHTTPS || s == SchemeFTP) {
		return aria2Helper, nil
	}
	h, ok := helpers[s]
	if !ok {
		return helper{}, fmt.Errorf("download: no helper image for scheme %q", s)
	}
	return h, nil
}
