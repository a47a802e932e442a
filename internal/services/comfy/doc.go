// Package comfy speaks the HTTP API of the remote workflow executor that
// performs all GPU-bound generation work.
//
// The Client covers the full job lifecycle: uploading input assets,
// submitting bound job graphs, polling execution state, waiting for
// terminal status under a wall-clock timeout, and downloading generated
// assets. Transport failures and 5xx responses are retried with
// exponential backoff; 4xx responses are classified as validation or
// not-found errors and surfaced with the server's message intact.
//
// Job graphs are loaded from JSON template files and parameterized via
// SlotBindings, which address nodes by class type instead of numeric IDs
// so templates can be re-exported without breaking callers.
package comfy
