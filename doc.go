/*
Package ctfbot provides the building blocks of the CTF community bot.

The engine receives Discord gateway events and dispatches them to plugins that can combine commands,
hear actions (listeners), reaction actions and scheduled actions. Commands all start with the
configured prefix and are parsed once into typed values (see package command) before reaching the
plugins. Messages of a channel are processed in order while unrelated channels are processed
concurrently.

Plugins also have access to services injected on registration by the engine:
  - SLogger: To log debug/info statements

Chat operations are performed through a chat.Driver given to each plugin when it is created.

Example code (see cmd/ctfbot for the complete wiring):

	func main() {
		session, err := discordgo.New("Bot " + v.GetString(config.TokenKey))
		if err != nil {
			log.Fatal(err)
		}

		driver := chat.NewSession(session, v.GetString(config.GuildIDKey))
		t := tracker.New(tracker.NewEpoch(time.Now().Year()), driver, logger)

		settings, err := plugins.NewSettings(v)
		if err != nil {
			log.Fatal(err)
		}

		bot, err := ctfbot.NewBot("ctfbot", v, session, driver).
			WithPlugin(plugins.NewAsker(driver, driver, t, settings).Plugin).
			WithPlugin(plugins.NewYearly(t, settings).Plugin).
			Build()
		if err != nil {
			log.Fatal(err)
		}
		defer bot.Close()

		if err = bot.Run(); err != nil {
			log.Fatal(err)
		}
	}
*/
package ctfbot
