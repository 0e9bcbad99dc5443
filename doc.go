// Package accounts implements the account identity and coin ledger core of
// the text-tools site: JWT session issuance and verification, password and
// federated (Google OAuth) login reconciled into a single canonical account,
// and an append-only coin transaction ledger with a strictly consistent
// cached balance.
//
// Identity resolution:
//   - social.Resolver maps a federated profile onto exactly one User: by
//     provider id first, by verified email second, creating an account last.
//     Repeated callbacks for the same provider identity are idempotent.
//
// Coin ledger:
//   - Ledger is the only writer of CoinTransaction rows. Every mutation runs
//     in a single transaction serialized per account, records balance before
//     and after, and keeps User.Coins equal to the latest entry's
//     BalanceAfter. Debits never drive the balance negative; admin
//     adjustments may.
//
// Request guarding lives in middleware/authware (go-router) with fiber-native
// helpers in fiber.go for apps that mount straight onto a fiber router.
package accounts
