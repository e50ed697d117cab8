// Package tgui holds the Telegram UI helpers used by the bot front-end:
// inline keyboards, "med:action:payload" callback data and an HTML-safe
// message builder.
package tgui
