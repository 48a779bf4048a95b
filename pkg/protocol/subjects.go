package protocol

const commandsPrefix = "sekia.commands."

// SubjectCommands returns the subject an agent receives commands on.
func SubjectCommands(agentName string) string {
	return commandsPrefix + agentName
}
