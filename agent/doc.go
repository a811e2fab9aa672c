// Package agent contains the reason/act agent loop and the sub-agent
// factory tool. The package focuses on three concerns:
//
//  1. The loop itself (Agent): REFLECT calls the model, ACT dispatches the
//     requested tool calls in order, and an ExitPolicy decides when to stop
//  2. System prompt resolution (Instruction): per-run override, the agent's
//     own instruction, or a prompt synthesized from its tool names
//  3. Spawning (NewSpawnTool): create_agent builds a child agent with its own
//     prompt and tools, bounded by the run's SpawnLimiter, and posts the
//     child's answer to the shared board
//
// Execution model:
//   - Run receives a *core.RunContext owned by exactly one agent
//   - Children run synchronously inside the parent's tool call under a child
//     context, so cancelling the parent aborts the whole subtree
//   - Tool failures are fed back to the model; model exhaustion, an exceeded
//     call budget and cancellation end the run with an error
package agent
