// Package assertplugin provides testing functions to validate a plugin's overall functionality.
// This package is designed to play well but not require the assertanswer package for validation
// of answers
//
// The asserter drives a plugin the way the engine does for a single message: the text is parsed
// once, commands and hear actions are evaluated in order and DirectOnly actions only see messages
// without a guild. Chat side effects are expected to go through a fake driver such as the one in
// package capture.
//
// Example:
//
//	func TestPlugin(t *testing.T) {
//	    asserter := assertplugin.New(t)
//	    p := newPlugin()
//
//	    asserter.Answers(p, chat.Message{ChannelID: "C1", GuildID: "G1", Content: ">ctf upcoming"}, func(t *testing.T, answers []*ctfbot.Answer) bool {
//	        return assert.Len(t, answers, 1) && assertanswer.HasText(t, answers[0], "No upcoming CTF events found.")
//	    })
//	}
package assertplugin // import "github.com/weixuan0110/ctfbot/test/assertplugin"
