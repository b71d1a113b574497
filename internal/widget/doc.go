// Package widget implements the widget hub: connections subscribe by opaque
// widget token and receive the current display payload whenever backing data
// changes. Payloads are rendered once per mode in use and delivered only to
// subscribers whose last-seen digest differs.
package widget
