// Package web serves the dashboard as embedded static files.
//
// Paths that do not name a file fall back to index.html so the dashboard
// can use client-side routes such as /installer. During development a
// directory on disk can replace the embedded copy.
package web
