package plugins_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weixuan0110/ctfbot"
	"github.com/weixuan0110/ctfbot/chat"
	"github.com/weixuan0110/ctfbot/plugins"
	"github.com/weixuan0110/ctfbot/test/assertanswer"
	"github.com/weixuan0110/ctfbot/test/assertplugin"
)

func newAsker(t *testing.T, s *server) *plugins.Asker {
	members, err := chat.NewCachingMemberFinder(0, s.driver, discardLogger())
	require.NoError(t, err)

	return plugins.NewAsker(s.driver, members, s.tracker, s.settings)
}

func TestAskForwardsToHelpChannel(t *testing.T) {
	s := newServer(t)
	s.driver.AddMember(chat.Member{UserID: "U1", Username: "alice"})

	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newAsker(t, s).Plugin, directMessage(">ask how do I start with pwn?"), answersWith("Your message has been sent to ctf-helpme anonymously."))

	assert.Equal(t, []string{"**Anon:**\n```markdown\nhow do I start with pwn?\n```"}, s.driver.SentTo(s.help.ID))
}

func TestAskWithUnknownHelpChannelStillForwards(t *testing.T) {
	s := newServer(t)
	s.driver.AddMember(chat.Member{UserID: "U1", Username: "alice"})
	s.settings.HelpChannelID = "999"

	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newAsker(t, s).Plugin, directMessage(">ask anyone?"), answersWith("Your message has been sent to the help channel anonymously."))

	assert.Len(t, s.driver.SentTo("999"), 1)
}

func TestAskCTFForwardsToEventChannel(t *testing.T) {
	tests := []struct {
		name     string
		category func(s *server) chat.Channel
	}{
		{"active", func(s *server) chat.Channel { return s.active }},
		{"archived", func(s *server) chat.Channel { return s.archive }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newServer(t)
			s.driver.AddMember(chat.Member{UserID: "U1", Username: "alice"})
			ch := s.driver.AddChannel("hack-the-planet", tc.category(s).ID)

			assertplugin := assertplugin.New(t)
			assertplugin.Answers(newAsker(t, s).Plugin, directMessage(">ask ctf hack-the-planet is the web challenge down?"),
				answersWith("Your message has been sent to hack-the-planet anonymously."))

			assert.Equal(t, []string{"**Anon:**\n```markdown\nis the web challenge down?\n```"}, s.driver.SentTo(ch.ID))
		})
	}
}

func TestAskCTFWithInvalidChannel(t *testing.T) {
	s := newServer(t)
	s.driver.AddMember(chat.Member{UserID: "U1", Username: "alice"})
	old := s.driver.AddCategory("ctf-2024")
	s.driver.AddChannel("old-ctf", old.ID)

	tests := []string{"nope", "old-ctf", "ctf-helpme"}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			assertplugin := assertplugin.New(t)
			assertplugin.Answers(newAsker(t, s).Plugin, directMessage(">ask ctf "+name+" hello?"), answersWith("Invalid channel '"+name+"' for this command."))
		})
	}

	assert.Empty(t, s.driver.Sent)
}

func TestAskFromNonMember(t *testing.T) {
	s := newServer(t)

	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newAsker(t, s).Plugin, directMessage(">ask hello?"), answersWith("You must be a member of the server to use this command."))

	assert.Empty(t, s.driver.Sent)
}

func TestAskWhenMembershipCantBeVerified(t *testing.T) {
	s := newServer(t)
	s.driver.Errors["Member"] = errors.New("discord unavailable")

	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newAsker(t, s).Plugin, directMessage(">ask hello?"), answersWith("Failed to verify your membership: discord unavailable"))

	assert.Empty(t, s.driver.Sent)
}

func TestAskWhenForwardingFails(t *testing.T) {
	s := newServer(t)
	s.driver.AddMember(chat.Member{UserID: "U1", Username: "alice"})
	s.driver.Errors["Send"] = errors.New("missing access")

	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newAsker(t, s).Plugin, directMessage(">ask hello?"), answersWith("Failed to send your message: missing access"))
}

func TestAskOnServerIsIgnored(t *testing.T) {
	s := newServer(t)
	s.driver.AddMember(chat.Member{UserID: "U1", Username: "alice"})

	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newAsker(t, s).Plugin, guildMessage(s.help.ID, ">ask hello?"), noAnswer)

	assert.Empty(t, s.driver.Sent)
}

func TestAskWithoutQuestion(t *testing.T) {
	s := newServer(t)

	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newAsker(t, s).Plugin, directMessage(">ask"), answersWith("Missing question. Usage: >ask <question>"))
}

func TestAskMembershipIsCached(t *testing.T) {
	s := newServer(t)
	s.driver.AddMember(chat.Member{UserID: "U1", Username: "alice"})

	members, err := chat.NewCachingMemberFinder(16, s.driver, discardLogger())
	require.NoError(t, err)
	asker := plugins.NewAsker(s.driver, members, s.tracker, s.settings)

	assertplugin := assertplugin.New(t)
	for i := 0; i < 3; i++ {
		assertplugin.Answers(asker.Plugin, directMessage(">ask hello?"), answersWith("Your message has been sent to ctf-helpme anonymously."))
	}

	assert.Equal(t, 1, s.driver.Calls["Member"])
	assert.Len(t, s.driver.SentTo(s.help.ID), 3)
}

func TestAskAnswersInPrivate(t *testing.T) {
	s := newServer(t)
	s.driver.AddMember(chat.Member{UserID: "U1", Username: "alice"})
	direct := assertanswer.ResolvedAnswerOption{Key: ctfbot.DirectOpt, Value: "true"}

	for _, text := range []string{">ask hello?", ">ask ctf nope hello?"} {
		assertplugin := assertplugin.New(t)
		assertplugin.Answers(newAsker(t, s).Plugin, directMessage(text), func(t *testing.T, answers []*ctfbot.Answer) bool {
			return assert.Len(t, answers, 1) && assertanswer.HasOptions(t, answers[0], direct)
		})
	}
}
