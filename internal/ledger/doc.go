// Package ledger implements the confidential balance ledger.
//
// Overview:
//   - Each account holds an encrypted spendable balance, an encrypted staked
//     balance, and an encrypted status code for its most recent operation,
//     plus a public one-time-claim flag
//   - Three mutating operations (Grant, Stake, Withdraw) transition the
//     encrypted state; reads return raw ciphertext handles for off-component
//     decryption by the account owner
//   - Stake and Withdraw compute both the success and failure outcome and
//     commit exactly one via confidential select: no code path branches on a
//     decrypted value, so an observer cannot tell success from insufficiency
//
// Every committed slot carries a dual access grant (ledger self + account
// owner) recorded in the same operation as the write. Host serialization of
// operations is assumed; the ledger takes no locks of its own.
package ledger
