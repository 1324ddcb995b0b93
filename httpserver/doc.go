/*
Package httpserver serves a built photo manifest over HTTP.

Routes:

	GET  /api/manifest          the manifest JSON
	POST /api/manifest/reload   re-read the manifest from storage
	GET  /api/photos/{id}       original image bytes
	GET  /api/photos/{id}/video motion photo payload or live photo sidecar
	GET  /api/providers         registered and active storage providers
	GET  /livez, /readyz        health checks
	GET  /drain, /undrain       toggle readiness for load balancers

Originals are kept in an LRU cache so repeated video requests for the same
motion photo do not download the image again. /debug/pprof is mounted when
pprof is enabled.
*/
package httpserver
