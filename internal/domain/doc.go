// Package domain contains the core concepts of the printer: render requests,
// page fragments, rendered artifacts, the error taxonomy and the ports to the
// remote rendering backend.
// Keep this package free of transport (HTTP) and infrastructure (Redis/Chrome/S3) concerns.
package domain
