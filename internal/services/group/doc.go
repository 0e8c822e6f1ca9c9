// Package group creates, distributes, and uses symmetric group keys.
//
// The creator generates a random 32-byte key and wraps it for every
// member under that member's established session key. A received key is
// trusted only when it arrives from the group's asserted creator.
// Group traffic is sealed with random nonces because every member
// encrypts under the same key; the authentication tag therefore proves
// "some member sent this", not which one. That is a documented
// limitation of the shared-key design, not a defect.
//
// Membership is fixed at creation. Changing membership means creating a
// new group with a new ID and key.
package group
