// Package announce advertises the device over mDNS once it is on the user's
// network, so companion apps can discover it locally.
package announce
