// Package dnsd is the captive DNS responder used during provisioning.
//
// While the setup access point is active, every A query on port 53 is
// answered with the portal's address so that a phone's connectivity probe
// lands on the provisioning page. The codec is hand-rolled for the one
// message shape involved; anything malformed or oversized is dropped.
package dnsd
