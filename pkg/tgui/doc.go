// Package tgui holds small Telegram formatting helpers:
//   - HTML escaping for ParseMode="HTML"
//   - message length limits
package tgui
