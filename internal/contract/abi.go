package contract

// contractABI is the method surface the dApp calls. Encrypted inputs
// travel as bytes: either the bare 32-byte payload, which takes the
// slot's default kind, or a kind byte followed by the payload.
// getUserProfile returns the reputation handle in the kind-prefixed form
// and a uint32 connection count instead of the contract's uint8 pair.
const contractABI = `[
  {"type":"function","name":"registerUser","stateMutability":"nonpayable",
   "inputs":[
     {"name":"username","type":"string"},
     {"name":"bio","type":"string"},
     {"name":"initialReputation","type":"bytes"},
     {"name":"inputProof","type":"bytes"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"createConnection","stateMutability":"nonpayable",
   "inputs":[
     {"name":"_user2","type":"address"},
     {"name":"trustLevel","type":"bytes"},
     {"name":"inputProof","type":"bytes"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"createInteraction","stateMutability":"nonpayable",
   "inputs":[
     {"name":"connectionId","type":"uint256"},
     {"name":"interactionType","type":"bytes"},
     {"name":"sentimentScore","type":"bytes"},
     {"name":"contentHash","type":"string"},
     {"name":"typeProof","type":"bytes"},
     {"name":"sentimentProof","type":"bytes"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"updateProfile","stateMutability":"nonpayable",
   "inputs":[
     {"name":"username","type":"string"},
     {"name":"bio","type":"string"}],
   "outputs":[]},
  {"type":"function","name":"getUserProfile","stateMutability":"view",
   "inputs":[{"name":"userId","type":"uint256"}],
   "outputs":[
     {"name":"username","type":"string"},
     {"name":"bio","type":"string"},
     {"name":"reputation","type":"bytes"},
     {"name":"connectionCount","type":"uint32"},
     {"name":"isActive","type":"bool"},
     {"name":"isVerified","type":"bool"},
     {"name":"wallet","type":"address"},
     {"name":"createdAt","type":"uint256"},
     {"name":"lastSeen","type":"uint256"}]}
]`
