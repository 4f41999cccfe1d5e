// Package portal is the provisioning HTTP server.
//
// It serves the setup page, a device-info API, and the set-wifi API that
// persists credentials, plus a catch-all that answers captive-portal
// connectivity probes with whatever redirect the probing client actually
// honors. The portal only runs while the setup access point is active.
package portal
