// Package services provides shared error classification and context helpers
// used by the external service clients and workflow stages.
package services
